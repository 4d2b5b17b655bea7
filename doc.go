// Package identity implements the identity, session, and role-authorization
// core of a multi-role marketplace platform.
//
// The package is organized around five collaborating components:
//
//   - Accounts owns user records and password hashes (registration,
//     authentication, profile updates, password reset completion).
//   - Verifier issues and redeems short-lived one-time codes for
//     registration, login step-up, and password reset.
//   - SessionManager mints access/refresh token pairs backed by revocable
//     session rows, and rotates or revokes them.
//   - RoleApplications drives a user's request for a new role through an
//     auditable pending/approved/rejected/cancelled state machine.
//   - Gate resolves a caller from a bearer token and grants or denies access
//     to an operation based on the caller's current role.
//
// Persistence is abstracted behind narrow per-aggregate store interfaces
// (see Stores); the bunstore and kvstore subpackages provide interchangeable
// relational and key/value backends. All uniqueness races (duplicate email,
// duplicate pending application, double code redemption) are resolved by
// conditional writes inside the adapters, never by read-then-write here.
package identity
