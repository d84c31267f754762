package tracker

type User struct {
	Username string `json:"username"`
	ID       string `json:"_id"`
}
