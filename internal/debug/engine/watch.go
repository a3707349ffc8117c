package engine

import (
	"errors"
	"slices"
)

// WatchExpression is a user expression re-evaluated at every pause.
//
// Evaluated reports whether the latest attempt has completed. Once it is
// true the attempt either failed, with the message in Error, or succeeded
// with the result in Value and Error empty. A successful result may itself
// be the empty string, so read Evaluated and Error rather than testing
// Value for emptiness.
type WatchExpression struct {
	ID         int    `json:"id"`
	Expression string `json:"expression"`
	Value      string `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	Evaluated  bool   `json:"evaluated"`
}

// WatchEvaluator owns the watch list and the bookkeeping for in-flight
// evaluations.
type WatchEvaluator struct {
	watches []*WatchExpression
	nextID  int

	// latest token issued per watch; older answers are ignored
	tokens    map[int]uint64
	nextToken uint64
}

// NewWatchEvaluator creates an empty evaluator.
func NewWatchEvaluator() *WatchEvaluator {
	return &WatchEvaluator{
		nextID: 1,
		tokens: make(map[int]uint64),
	}
}

// Add appends an unevaluated watch.
func (w *WatchEvaluator) Add(expression string) WatchExpression {
	we := &WatchExpression{ID: w.nextID, Expression: expression}
	w.nextID++
	w.watches = append(w.watches, we)
	return *we
}

// Remove deletes a watch.
func (w *WatchEvaluator) Remove(id int) error {
	i := w.index(id)
	if i < 0 {
		return ErrUnknownWatch
	}
	w.watches = slices.Delete(w.watches, i, i+1)
	delete(w.tokens, id)
	return nil
}

// Get returns a watch by id.
func (w *WatchEvaluator) Get(id int) (WatchExpression, bool) {
	i := w.index(id)
	if i < 0 {
		return WatchExpression{}, false
	}
	return *w.watches[i], true
}

// All returns every watch in insertion order.
func (w *WatchEvaluator) All() []WatchExpression {
	result := make([]WatchExpression, len(w.watches))
	for i, we := range w.watches {
		result[i] = *we
	}
	return result
}

// Len returns the number of watches.
func (w *WatchEvaluator) Len() int {
	return len(w.watches)
}

// Issue registers a new evaluation for a watch and returns its token.
func (w *WatchEvaluator) Issue(id int) (uint64, bool) {
	if w.index(id) < 0 {
		return 0, false
	}
	w.nextToken++
	w.tokens[id] = w.nextToken
	return w.nextToken, true
}

// Apply stores an evaluation result. Results for removed watches or
// superseded tokens are dropped and reported as false.
func (w *WatchEvaluator) Apply(id int, token uint64, value string, err error) bool {
	i := w.index(id)
	if i < 0 || w.tokens[id] != token {
		return false
	}
	delete(w.tokens, id)

	we := w.watches[i]
	we.Evaluated = true
	if err != nil {
		we.Value = ""
		we.Error = errorText(err)
		return true
	}
	we.Value = value
	we.Error = ""
	return true
}

// Forget drops every outstanding token so late answers are ignored.
func (w *WatchEvaluator) Forget() {
	clear(w.tokens)
}

// ClearValues resets every watch to the unevaluated state.
func (w *WatchEvaluator) ClearValues() {
	w.Forget()
	for _, we := range w.watches {
		we.Value = ""
		we.Error = ""
		we.Evaluated = false
	}
}

func (w *WatchEvaluator) index(id int) int {
	return slices.IndexFunc(w.watches, func(we *WatchExpression) bool {
		return we.ID == id
	})
}

// errorText returns the adapter's message for evaluation failures and the
// full error text otherwise.
func errorText(err error) string {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) && evalErr.Message != "" {
		return evalErr.Message
	}
	return err.Error()
}
