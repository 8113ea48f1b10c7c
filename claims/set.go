package claims

const (
	// TypeSubject carries the stable user identifier.
	TypeSubject = "sub"
	// TypeEmail carries the user's email address.
	TypeEmail = "email"
)

// Claim is a single typed fact about the authenticated subject.
type Claim struct {
	Type  string
	Value string
}

// Set is an ordered collection of claims, unique by type. Adding a claim
// whose type already exists replaces the value in place and keeps the
// original position.
type Set struct {
	items []Claim
}

// Add inserts or replaces the claim of the given type.
func (s *Set) Add(typ, value string) {
	for i := range s.items {
		if s.items[i].Type == typ {
			s.items[i].Value = value
			return
		}
	}
	s.items = append(s.items, Claim{Type: typ, Value: value})
}

// Get returns the value for typ and whether it is present.
func (s Set) Get(typ string) (string, bool) {
	for _, c := range s.items {
		if c.Type == typ {
			return c.Value, true
		}
	}
	return "", false
}

// Len returns the number of claims.
func (s Set) Len() int {
	return len(s.items)
}

// All returns a copy of the claims in insertion order.
func (s Set) All() []Claim {
	out := make([]Claim, len(s.items))
	copy(out, s.items)
	return out
}

// Subject is shorthand for Get(TypeSubject).
func (s Set) Subject() string {
	v, _ := s.Get(TypeSubject)
	return v
}

// Email is shorthand for Get(TypeEmail).
func (s Set) Email() string {
	v, _ := s.Get(TypeEmail)
	return v
}

// Build derives the claim set for a user snapshot. The result always holds
// exactly an email claim followed by a subject claim. Callers validate that
// the user exists; Build never fails.
func Build(userID, email string) Set {
	var s Set
	s.items = make([]Claim, 0, 2)
	s.Add(TypeEmail, email)
	s.Add(TypeSubject, userID)
	return s
}
