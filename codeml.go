package ferromic

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCodemlTimeout bounds one external maximum-likelihood run. A
// two-sequence comparison normally finishes in seconds; anything past
// this is treated as hung and killed.
const DefaultCodemlTimeout = 300 * time.Second

// Executor computes one pairwise comparison. Implementations must be
// safe for concurrent use by multiple workers; failures are reported in
// the result's omega (NaN), never by aborting.
type Executor interface {
	Compare(regionID string, a, b Sample) PairResult
}

// CodemlRunner runs the PAML codeml executable for each non-identical
// pair in a private scratch directory under WorkDir.
type CodemlRunner struct {
	Path    string
	Timeout time.Duration
	WorkDir string
}

// NewCodemlRunner returns a runner with the default timeout.
func NewCodemlRunner(codemlPath, workDir string) *CodemlRunner {
	return &CodemlRunner{
		Path:    codemlPath,
		Timeout: DefaultCodemlTimeout,
		WorkDir: workDir,
	}
}

// Compare estimates dN, dS and omega for one pair. Byte-identical
// sequences short-circuit to the identical sentinel without invoking
// the tool. Everything else runs codeml with a bounded timeout; a tool
// failure or unparsable output yields a Failed result (NaN), keeping
// the batch alive.
func (cr *CodemlRunner) Compare(regionID string, a, b Sample) PairResult {
	result := PairResult{
		SeqA:    a.Name,
		SeqB:    b.Name,
		CohortA: a.Cohort,
		CohortB: b.Cohort,
		Region:  regionID,
	}

	if a.Seq == b.Seq {
		result.DN, result.DS, result.Omega = 0, 0, OmegaIdentical
		return result
	}

	scratch := path.Join(cr.WorkDir, fmt.Sprintf("%s_%s", a.Name, b.Name))
	if err := cr.writeInputs(scratch, a, b); err != nil {
		log.Errorf("%s: %s", regionID, err)
		return failedResult(result)
	}
	defer os.RemoveAll(scratch)

	if err := cr.run(scratch); err != nil {
		log.Errorf("%s %s/%s: %s", regionID, a.Name, b.Name, err)
		return failedResult(result)
	}

	dn, ds, omega, err := parseCodemlOutput(scratch)
	if err != nil {
		log.Errorf("%s %s/%s: %s", regionID, a.Name, b.Name, err)
		return failedResult(result)
	}
	result.DN, result.DS, result.Omega = dn, ds, omega
	return result
}

func failedResult(r PairResult) PairResult {
	r.DN, r.DS, r.Omega = math.NaN(), math.NaN(), math.NaN()
	return r
}

// writeInputs materializes the two-sequence alignment, the trivial
// pairing tree and the control file inside the scratch directory.
func (cr *CodemlRunner) writeInputs(scratch string, a, b Sample) error {
	if err := os.MkdirAll(scratch, 0777); err != nil {
		return fmt.Errorf("Could not create scratch directory '%s': %s.",
			scratch, err)
	}

	seqfile := fmt.Sprintf(" 2 %d\n%s  %s\n%s  %s\n",
		len(a.Seq), a.Name, a.Seq, b.Name, b.Seq)
	if err := os.WriteFile(
		path.Join(scratch, "seqfile.phy"), []byte(seqfile), 0666); err != nil {
		return fmt.Errorf("Could not write alignment: %s.", err)
	}

	tree := fmt.Sprintf("(%s,%s);\n", a.Name, b.Name)
	if err := os.WriteFile(
		path.Join(scratch, "tree.txt"), []byte(tree), 0666); err != nil {
		return fmt.Errorf("Could not write tree file: %s.", err)
	}

	if err := os.WriteFile(
		path.Join(scratch, "codeml.ctl"), []byte(codemlCtl()), 0666); err != nil {
		return fmt.Errorf("Could not write control file: %s.", err)
	}
	return nil
}

// codemlCtl is the fixed tool configuration: pairwise ML mode over
// codons, codon-frequency model F3x4, kappa and omega free (seeded at
// 2.0 and 1.0), no rate heterogeneity, ambiguity sites cleaned.
func codemlCtl() string {
	return `      seqfile = seqfile.phy
      treefile = tree.txt
      outfile = mlc
      noisy = 0
      verbose = 0
      runmode = -2
      seqtype = 1
      CodonFreq = 2
      model = 0
      NSsites = 0
      icode = 0
      fix_kappa = 0
      kappa = 2.0
      fix_omega = 0
      omega = 1.0
      fix_alpha = 1
      alpha = 0.0
      getSE = 0
      RateAncestor = 0
      cleandata = 1
`
}

// run executes the tool in the scratch directory, killing it at the
// timeout. codeml chatters on stdout and reports real problems on
// stderr, which is folded into the returned error.
func (cr *CodemlRunner) run(scratch string) error {
	timeout := cr.Timeout
	if timeout <= 0 {
		timeout = DefaultCodemlTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// codeml picks up codeml.ctl from its working directory.
	cmd := exec.CommandContext(ctx, cr.Path)
	cmd.Dir = scratch
	// Without a WaitDelay, Run blocks past the kill while any
	// grandchild of the tool holds the stdout/stderr pipes open.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	Vprintf("%s\n", strings.Join(cmd.Args, " "))
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("codeml timed out after %s", timeout)
	}
	if err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("codeml failed: %s. stderr:\n%s",
				err, stderr.String())
		}
		return fmt.Errorf("codeml failed: %s", err)
	}
	return nil
}

var codemlResultRe = regexp.MustCompile(
	`t=\s*[\d.]+\s+S=\s*([\d.]+)\s+N=\s*([\d.]+)\s+` +
		`dN/dS=\s*([\d.]+)\s+dN=\s*([\d.]+)\s+dS=\s*([\d.]+)`)

// parseCodemlOutput extracts dN, dS and omega from the scratch
// directory. The rst file carries the full estimate line and is tried
// first; if it is missing or unparsable, the per-branch distance files
// 2ML.dN and 2ML.dS are read instead and omega recomputed from them.
func parseCodemlOutput(scratch string) (dn, ds, omega float64, err error) {
	content, rerr := os.ReadFile(path.Join(scratch, "rst"))
	if rerr == nil {
		if m := codemlResultRe.FindSubmatch(content); m != nil {
			omega, _ = strconv.ParseFloat(string(m[3]), 64)
			dn, _ = strconv.ParseFloat(string(m[4]), 64)
			ds, _ = strconv.ParseFloat(string(m[5]), 64)
			return dn, ds, omega, nil
		}
	}

	dn, dnErr := parsePairDistance(path.Join(scratch, "2ML.dN"))
	ds, dsErr := parsePairDistance(path.Join(scratch, "2ML.dS"))
	if dnErr != nil || dsErr != nil {
		return 0, 0, 0, fmt.Errorf("could not parse codeml output")
	}
	if ds == 0 {
		return dn, ds, OmegaNoSynonymous, nil
	}
	return dn, ds, dn / ds, nil
}

// parsePairDistance reads one of the 2ML distance files, a count line
// followed by a lower-triangular matrix. For a two-sequence run the
// only distance is the final field of the final row.
func parsePairDistance(file string) (float64, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	var last string
	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			last = fields[len(fields)-1]
		}
	}
	if last == "" {
		return 0, fmt.Errorf("no distance row in '%s'", file)
	}
	return strconv.ParseFloat(last, 64)
}
