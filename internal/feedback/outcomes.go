// Package feedback carries resolution outcomes and narration back into the
// next perception report.
package feedback

import (
	"fmt"
	"sync"
)

// Record is the last resolution result for one actor.
type Record struct {
	Success bool `json:"success"`
	Roll    int  `json:"roll"`
	DC      int  `json:"dc"`
}

// Encode renders "success(<roll>/<dc>)" or "fail(<roll>/<dc>)".
func (r Record) Encode() string {
	verdict := "fail"
	if r.Success {
		verdict = "success"
	}
	return fmt.Sprintf("%s(%d/%d)", verdict, r.Roll, r.DC)
}

// Outcomes keeps only the most recent Record per actor.
type Outcomes struct {
	mu   sync.RWMutex
	last map[string]Record
}

func NewOutcomes() *Outcomes {
	return &Outcomes{last: map[string]Record{}}
}

func (o *Outcomes) Report(actorID string, success bool, roll, dc int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last[actorID] = Record{Success: success, Roll: roll, DC: dc}
}

func (o *Outcomes) Last(actorID string) (Record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.last[actorID]
	return r, ok
}

func (o *Outcomes) GetLast(actorID string) (string, bool) {
	r, ok := o.Last(actorID)
	if !ok {
		return "", false
	}
	return r.Encode(), true
}

func (o *Outcomes) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.last)
}
