package system

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// perJobMemory - грубая оценка памяти одного рендера 1080x1920
// (декодер, холсты и энкодер).
const perJobMemory = 1500 << 20

// Budget - потоки энкодера и лимит параллельных задач по умолчанию для этой машины.
type Budget struct {
	Threads      int
	ParallelJobs int
}

// DetectBudget считает значения по числу логических ядер и свободной памяти.
// Если gopsutil не отвечает, берём runtime.NumCPU и одну задачу на четыре ядра.
func DetectBudget() Budget {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	parallel := max(1, cores/4)
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		parallel = min(parallel, max(1, int(vm.Available/perJobMemory)))
	}
	parallel = min(parallel, 8)

	return Budget{Threads: cores, ParallelJobs: parallel}
}
