package service

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
)

// lessonRange builds an inclusive lesson range, rejecting inverted bounds.
func lessonRange(start, end int) (models.LessonRange, error) {
	if start < 1 || end < start {
		return models.LessonRange{}, appErrors.Clone(appErrors.ErrValidation, "start_lesson must be >= 1 and <= end_lesson")
	}
	return models.LessonRange{Start: start, End: end}, nil
}

// normalizeRoom canonicalizes a room label so "b204" and "B204" collide.
func normalizeRoom(room string) string {
	return strings.ToUpper(strings.TrimSpace(room))
}

// conflictError wraps a detected collision in the schedule-conflict kind so
// handlers surface both the taxonomy code and the offending slot.
func conflictError(conflict *models.ScheduleConflict) error {
	cause := &models.ScheduleConflictError{Conflict: *conflict}
	return appErrors.Wrap(cause, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, cause.Error()).
		WithDetails(cause.Conflict)
}

// isUniqueViolation reports whether err is a Postgres unique or exclusion
// violation. Serializable transactions plus these constraints are the
// storage-level backstop against concurrent double booking.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" || pqErr.Code == "23P01"
	}
	return false
}
