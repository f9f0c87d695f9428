package checkout

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSettled   Status = "SETTLED"
	StatusInvalid   Status = "INVALID"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusSettled: true, StatusInvalid: true, StatusCancelled: true, StatusExpired: true},
	StatusSettled:   {},
	StatusInvalid:   {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool { return s != StatusPending }
