package models

// Role is the authorization role of an actor.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// Actor is an authenticated user acting on requests.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	Team string `json:"team"`
}

// CanReview reports whether the actor may approve or reject requests owned by team.
func (a Actor) CanReview(team string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return a.Team != "" && a.Team == team
	default:
		return false
	}
}

// CanView reports whether the actor may read the given request.
func (a Actor) CanView(r *Request) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return a.Team == r.Team || a.ID == r.RequesterID
	default:
		return a.ID == r.RequesterID
	}
}
