package database

import (
	"errors"

	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the stores translate.
const (
	pqUniqueViolation     = "23505"
	pqNotNullViolation    = "23502"
	pqForeignKeyViolation = "23503"
)

// Messages reported for integrity violations. They are shared with the
// service layer so that an application-level check and a constraint caught
// at commit produce identical responses.
const (
	MsgEmailTaken    = "A user with that email already exists."
	MsgCodeNameTaken = "A user with that code name already exists."
	MsgRequired      = "This field is required."
	MsgInvalidPK     = "Invalid pk - object does not exist."
)

// columnFields maps NOT NULL columns to their request field names.
var columnFields = map[string]string{
	"latitude":       "latitude",
	"longitude":      "longitude",
	"user_id":        "user",
	"email":          "email",
	"password_hash":  "password",
	"parent_ping_id": "parent_ping",
}

// mapPQError turns integrity violations into validation errors and passes
// anything else through unchanged. Raw driver errors never reach clients.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case constraintUsersEmail:
			return utils.FieldError("email", MsgEmailTaken)
		case constraintUsersCodeName:
			return utils.FieldError("code_name", MsgCodeNameTaken)
		}
		return utils.NewValidationError("Duplicate value.", nil)

	case pqNotNullViolation:
		field, ok := columnFields[pqErr.Column]
		if !ok {
			field = pqErr.Column
		}
		return utils.FieldError(field, MsgRequired)

	case pqForeignKeyViolation:
		switch pqErr.Constraint {
		case constraintPingsParent:
			return utils.FieldError("parent_ping", MsgInvalidPK)
		case constraintPingsUser:
			return utils.FieldError("user", MsgInvalidPK)
		}
		return utils.NewValidationError("Referenced object does not exist.", nil)
	}

	return err
}
