/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room and Message Business Logic Errors
const (
	// ErrRoomNotFound indicates that the room referenced by the operation does not exist.
	ErrRoomNotFound = 2101

	// ErrDuplicateRoom indicates that a room with the same name already exists
	// in the case-insensitive public namespace.
	ErrDuplicateRoom = 2102

	// ErrNotAMember indicates that the sender is not a member of the target room.
	ErrNotAMember = 2103

	// ErrForbidden indicates that the caller lacks authorization for the operation,
	// such as self-joining a private room without an invite.
	ErrForbidden = 2104

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2201

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202

	// ErrMessageKindInvalid indicates an unsupported message kind was supplied.
	ErrMessageKindInvalid = 2203

	// ErrFileSizeTooLarge indicates that an attachment exceeded the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrFileTypeInvalid indicates a disallowed attachment file type or MIME mismatch.
	ErrFileTypeInvalid = 2302

	// ErrFileStorageFailed indicates the storage backend rejected the upload.
	ErrFileStorageFailed = 2303
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnknownSession indicates the referenced session is not registered.
	ErrUnknownSession = 3001

	// ErrDuplicateConnection indicates the same connection handle was registered twice.
	ErrDuplicateConnection = 3002

	// ErrUnauthorized indicates the request lacks a valid identity token.
	ErrUnauthorized = 3003

	// ErrInvalidUsername indicates the username failed format validation.
	ErrInvalidUsername = 3101

	// ErrInvalidPassword indicates the password failed length validation.
	ErrInvalidPassword = 3102

	// ErrUserAlreadyExists indicates the username is already taken.
	ErrUserAlreadyExists = 3103

	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = 3104

	// ErrUserNotFound indicates the referenced user account does not exist.
	ErrUserNotFound = 3105

	// ErrAlreadyLoggedIn indicates an authenticated user attempted to register or log in again.
	ErrAlreadyLoggedIn = 3106
)

// 4xxx: Transport Errors
const (
	// ErrTransportUnavailable indicates the delivery transport cannot accept the event,
	// e.g. the recipient's outbound queue is gone.
	ErrTransportUnavailable = 4001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
