package accountstore

import (
	"errors"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

const (
	azblobBlobNotFound          = "BlobNotFound"
	azblobBlobAlreadyExists     = "BlobAlreadyExists"
	azblobConditionNotMet       = "ConditionNotMet"
	azblobTargetConditionNotMet = "TargetConditionNotMet"
)

func asStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	//nolint
	ierr, ok := err.(*azStorageBlob.InternalError)
	if ierr == nil || !ok {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

func storageErrorCode(err error) string {
	serr, ok := asStorageError(err)
	if !ok {
		return ""
	}
	return string(serr.ErrorCode)
}

// translateBlobError maps the azure errors that matter to account storage
// onto this package's sentinels. Any other error, including nil, is
// returned as is.
func translateBlobError(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch storageErrorCode(err) {
	case azblobBlobNotFound:
		sentinel = ErrAccountNotFound
	case azblobBlobAlreadyExists:
		sentinel = ErrAccountExists
	case azblobConditionNotMet, azblobTargetConditionNotMet:
		sentinel = ErrVersionConflict
	default:
		return err
	}
	return errors.Join(sentinel, err)
}
