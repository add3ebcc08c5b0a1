package identity

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

const invalidRequestMessage = "At least one of email or phoneNumber is required"

func ErrInvalidRequest() error {
	return httperror.NewHTTPError(http.StatusBadRequest, invalidRequestMessage)
}

// ErrClusterBusy means the cluster kept changing while its lock was being taken.
func ErrClusterBusy(attempts int) error {
	return httperror.NewHTTPError(http.StatusConflict, "contact cluster is busy, retry the request").
		AddMetaValue("attempts", attempts)
}

func ErrContactNotFound(id int64) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %d not found", id))
}

// errNoPrimary is an internal consistency fault: a live cluster always has a primary.
func errNoPrimary(contactIDs []int64) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, "contact cluster has no primary").
		AddMetaValue("contact_ids", contactIDs)
}
