// Package notification sends resident notifications to the notification service.
//
// Requests go out under the SEND_NOTIFICATION tag with the user id as message id.
// Sending is best-effort: builder rejections and broker failures are logged and
// swallowed.
package notification
