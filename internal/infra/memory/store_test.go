package memory

import (
	"testing"

	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/docstore/docstoretest"
)

func TestStoreContract(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		return NewStore()
	})
}
