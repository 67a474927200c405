package domain

import (
	"fmt"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

const (
	prefixTransaction = "txn"
	prefixRun         = "run"
	prefixArtifact    = "art"
	prefixStudyPack   = "pack"
)

func NewTransactionID() string { return newTypeID(prefixTransaction) }

func NewRunID() string { return newTypeID(prefixRun) }

func NewArtifactID() string { return newTypeID(prefixArtifact) }

func NewStudyPackID() string { return newTypeID(prefixStudyPack) }

func NewDocumentID() string { return uuid.NewString() }

func newTypeID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("typeid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// UserIDFromExternal derives the stable user id for an identity-provider id.
func UserIDFromExternal(namespace uuid.UUID, externalID string) string {
	return uuid.NewSHA1(namespace, []byte(externalID)).String()
}
