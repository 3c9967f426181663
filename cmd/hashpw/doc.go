// Command hashpw manages the bitzomax admin password.
//
// The server protects /api/admin with HTTP basic auth and compares the
// password against the bcrypt hash in ADMIN_PASSWORD_HASH. It never stores
// the password itself.
//
// Usage:
//
//	hashpw <command>
//
// Commands:
//
//	hash    Prompt for a new password twice and print its bcrypt hash.
//	        Put the output in ADMIN_PASSWORD_HASH.
//
//	verify  Prompt for a password and report whether it matches
//	        ADMIN_PASSWORD_HASH.
//
// Passwords are read without echo from a terminal. When stdin is not a
// terminal they are read one per line, so the tool can be scripted:
//
//	printf 'secret-pw\nsecret-pw\n' | hashpw hash
package main
