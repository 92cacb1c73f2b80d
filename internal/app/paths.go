package app

import (
	"fmt"

	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

const (
	usersCollection     = "users"
	shardsCollection    = "shards"
	questionsCollection = "userQuestions"
	sessionsCollection  = "quiz_sessions"
)

// subjectCollections are removed, in this order, by reset and delete.
var subjectCollections = []string{sessionsCollection, questionsCollection, shardsCollection}

func subjectPath(subjectID, collection string) string {
	return docstore.Path(usersCollection, subjectID, collection)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func invalidArg(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg)
}

// CollectionKinds lists every collection name the service writes, for
// backends that prepare storage per kind.
func CollectionKinds() []string {
	return []string{usersCollection, shardsCollection, questionsCollection, sessionsCollection}
}
