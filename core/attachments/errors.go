package attachments

import "fmt"

// NotFoundError reports an unknown kind token or a missing instance.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("attachment %s %q not found", e.What, e.Key)
}
