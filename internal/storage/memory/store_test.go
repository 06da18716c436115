package memory

import (
	"testing"

	"davi/internal/storage"
	"davi/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return New()
	})
}
