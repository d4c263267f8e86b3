package domain

import "strconv"

// Identity — пользователь, резолвленный из bearer-токена при подключении.
// Неизменяема на всё время жизни соединения.
type Identity struct {
	UserID   int64
	Username string
}

func (i Identity) UserIDString() string {
	return strconv.FormatInt(i.UserID, 10)
}
