package queue

// Task is one unit of fan-out work: run Query against Stand and record the
// outcome under QueryID. Tasks are ephemeral; they live only in the queue
// and are consumed exactly once.
type Task struct {
	Stand   string
	QueryID int64
	Query   string
	Limit   int
}
