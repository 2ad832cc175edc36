// Package http provides HTTP handlers and middleware for the alarm engine API.
//
// The router exposes the following endpoints:
//   - GET /plans, POST /plans, GET /plans/{id}, PUT /plans/{id},
//     DELETE /plans/{id}, PUT /plans/{id}/enabled: alarm plan management
//     endpoints exchanging the `planDTO` payload defined in plan_handler.go.
//     Mutation responses carry the reconcile warnings produced while the
//     platform registrations were brought back in line.
//   - GET /exceptions, POST /exceptions, DELETE /exceptions/{id}: skip
//     exception endpoints exchanging the `exceptionDTO` payload defined in
//     exception_handler.go. A request without `plan_id` creates a global
//     exception covering every plan.
//   - GET /queue: derived occurrence listing, `lookahead` query parameter
//     bounds how many live occurrences per plan are expanded. Skipped
//     occurrences are included with their reason.
//   - GET /tokens: the currently pending platform registrations.
//   - POST /events: accepts {"event":...} and triggers a reconcile run for
//     plan_changed, exception_changed, boot_completed, clock_changed or
//     scheduled_refresh.
//   - GET /ring, POST /ring/stop, POST /ring/snooze: live ring session
//     control exchanging the `ringDTO` payload defined in ring_handler.go.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
