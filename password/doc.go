// Package password implements password hashing, verification and the
// credential policies applied when a password is set.
//
// # Output format
//
// Argon2id (the default) and scrypt hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//	$scrypt$ln=<log2 N>,r=<block size>,p=<parallelism>$<salt>$<hash>
//
// bcrypt uses its native modular-crypt format. sha256 is verify-only and
// exists for imported users.
//
// [Manager.NeedsUpgrade] reports when a stored hash was produced by a
// non-default algorithm or weaker parameters so the caller can re-hash on the
// next successful login.
//
// # Policies
//
// [Policy], [Dictionary], [Manager.CheckHistory] and [CheckPersonalData] are
// pure checks over their inputs. Callers decide which ones apply and persist
// the results.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goIdentity package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
