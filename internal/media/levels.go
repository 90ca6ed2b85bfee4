package media

import (
	"sort"
	"sync"
	"time"
)

const (
	DefaultObserverMaxEntries = 1
	DefaultObserverThreshold  = -80
	DefaultObserverInterval   = 800 * time.Millisecond
)

// WithDefaults fills zero fields.
func (o AudioLevelObserverOptions) WithDefaults() AudioLevelObserverOptions {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultObserverMaxEntries
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultObserverThreshold
	}
	if o.Interval <= 0 {
		o.Interval = DefaultObserverInterval
	}
	return o
}

// Level is the averaged volume (dBov) of one producer over an interval.
type Level struct {
	ProducerID string
	Volume     int
}

type levelSum struct {
	sum   int
	count int
}

// LevelAggregator averages audio levels per producer and decides, once per
// interval, whether to report loudest producers or a transition to silence.
type LevelAggregator struct {
	mu        sync.Mutex
	opts      AudioLevelObserverOptions
	producers map[string]*levelSum
	silent    bool
}

func NewLevelAggregator(opts AudioLevelObserverOptions) *LevelAggregator {
	return &LevelAggregator{
		opts:      opts.WithDefaults(),
		producers: make(map[string]*levelSum),
		silent:    true,
	}
}

func (a *LevelAggregator) Options() AudioLevelObserverOptions { return a.opts }

func (a *LevelAggregator) Add(producerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.producers[producerID]; !ok {
		a.producers[producerID] = &levelSum{}
	}
}

func (a *LevelAggregator) Remove(producerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.producers, producerID)
}

func (a *LevelAggregator) Has(producerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.producers[producerID]
	return ok
}

// Record adds one sample; volume is in dBov, 0 loudest, -127 silent.
func (a *LevelAggregator) Record(producerID string, volume int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.producers[producerID]
	if !ok {
		return
	}
	s.sum += volume
	s.count++
}

// Flush closes the current interval. It returns the loudest producers above
// the threshold, or silence=true the first time nothing qualifies.
func (a *LevelAggregator) Flush() (levels []Level, silence bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, s := range a.producers {
		if s.count > 0 {
			avg := s.sum / s.count
			if avg > a.opts.Threshold {
				levels = append(levels, Level{ProducerID: id, Volume: avg})
			}
		}
		s.sum, s.count = 0, 0
	}
	if len(levels) == 0 {
		if a.silent {
			return nil, false
		}
		a.silent = true
		return nil, true
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Volume == levels[j].Volume {
			return levels[i].ProducerID < levels[j].ProducerID
		}
		return levels[i].Volume > levels[j].Volume
	})
	if len(levels) > a.opts.MaxEntries {
		levels = levels[:a.opts.MaxEntries]
	}
	a.silent = false
	return levels, false
}
