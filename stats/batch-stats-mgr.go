package stats

import (
	"sync"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/retail-loader/logger"
)

type StatsFetcher interface {
	GetStats() []Stats
}

// BatchStatsManager keeps a StepWatcher per batch stage in the order the stages were added,
// so logged stats read top to bottom like the pipeline.
type BatchStatsManager struct {
	mu           sync.Mutex
	log          logger.Logger
	mapStepStats *ordered_map.OrderedMap // step name -> *StepWatcher
}

func NewBatchStats(log logger.Logger) *BatchStatsManager {
	return &BatchStatsManager{log: log, mapStepStats: ordered_map.NewOrderedMap()}
}

// AddStepWatcher returns the watcher for stepName, creating it on first use.
func (t *BatchStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sw, ok := t.mapStepStats.Get(stepName); ok {
		return sw.(*StepWatcher)
	}
	sw := NewStepWatcher(t.log, stepName)
	t.mapStepStats.Set(stepName, sw)
	return sw
}

// Step starts the named watcher and returns it, ready for a deferred Stop.
func (t *BatchStatsManager) Step(stepName string) *StepWatcher {
	sw := t.AddStepWatcher(stepName)
	sw.Start()
	return sw
}

// LogStats writes one line per step at warn level, which is the level used for run summaries.
func (t *BatchStatsManager) LogStats() {
	for _, s := range t.GetStats() {
		t.log.Warn(s.String())
	}
}

// GetStats implements interface StatsFetcher{}.
func (t *BatchStatsManager) GetStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	iter := t.mapStepStats.IterFunc()
	statsList := make([]Stats, 0)
	for kv, ok := iter(); ok; kv, ok = iter() { // for each step in the order it was added...
		statsList = append(statsList, kv.Value.(*StepWatcher).RenderStats())
	}
	return statsList
}
