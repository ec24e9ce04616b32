package master

// updatePerf folds one periodic-task tick into the running min/max/
// average period (t0 - last_t0, §4.E step 7) and records this tick's
// send execution time separately. The streaming average is the cheap
// form the teacher favors over retaining a sample window.
func (m *Master) updatePerf(periodNS, execNS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.perf.cycles == 0 || periodNS < m.perf.MinPeriodNS {
		m.perf.MinPeriodNS = periodNS
	}
	if periodNS > m.perf.MaxPeriodNS {
		m.perf.MaxPeriodNS = periodNS
	}
	m.perf.cycles++
	m.perf.sumNS += periodNS
	m.perf.AvgPeriodNS = m.perf.sumNS / m.perf.cycles
	m.perf.SendExecNS = execNS
}
