package ferromic

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// workerMemBudget is the memory assumed per concurrent external-tool
// invocation when sizing the worker pool.
const workerMemBudget = 2 * 1024 * 1024 * 1024

// SafeWorkerCount sizes the worker pool from system resources: half the
// CPUs, further capped so that each worker has a 2 GiB share of the
// memory currently available. Always at least one.
func SafeWorkerCount() int {
	cpus := runtime.NumCPU() / 2

	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warnf("Could not read available memory: %s. "+
			"Sizing workers from CPU count only.", err)
		return max(1, cpus)
	}
	byMem := int(vm.Available / uint64(workerMemBudget))
	return max(1, min(cpus, byMem))
}
