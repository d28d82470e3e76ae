// Package password hashes and verifies user passwords with Argon2id and
// checks candidate passwords against the account password policy.
//
// Encoded hashes use the PHC string format
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// Stored hashes are treated as untrusted input: Verify refuses parameters far
// above the configured cost so a tampered row cannot pin a CPU.
package password
