/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Message: "Failed to process uploaded data."},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large."},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room and Message Business Logic Errors
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "Chat room not found."},
	ErrDuplicateRoom:         {Code: ErrDuplicateRoom, Message: "A room with this name already exists."},
	ErrNotAMember:            {Code: ErrNotAMember, Message: "You are not a member of this room."},
	ErrForbidden:             {Code: ErrForbidden, Message: "You are not allowed to perform this action.", Status: http.StatusForbidden},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageKindInvalid:    {Code: ErrMessageKindInvalid, Message: "Unsupported message type."},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large."},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Message: "Invalid file type."},
	ErrFileStorageFailed:     {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again."},

	// 3xxx: User, Session, and Security Errors
	ErrUnknownSession:      {Code: ErrUnknownSession, Message: "Session is no longer active."},
	ErrDuplicateConnection: {Code: ErrDuplicateConnection, Message: "This connection is already registered."},
	ErrUnauthorized:        {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidUsername:     {Code: ErrInvalidUsername, Message: "Invalid username."},
	ErrInvalidPassword:     {Code: ErrInvalidPassword, Message: "Invalid password."},
	ErrUserAlreadyExists:   {Code: ErrUserAlreadyExists, Message: "Username is already taken."},
	ErrInvalidCredentials:  {Code: ErrInvalidCredentials, Message: "Incorrect username or password."},
	ErrUserNotFound:        {Code: ErrUserNotFound, Message: "Account not found."},
	ErrAlreadyLoggedIn:     {Code: ErrAlreadyLoggedIn, Message: "You are already signed in."},

	// 4xxx: Transport Errors
	ErrTransportUnavailable: {Code: ErrTransportUnavailable, Message: "Connection is unavailable. Please reconnect.", Status: http.StatusServiceUnavailable},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
