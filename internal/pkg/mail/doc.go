// Package mail defines the contracts for sending email messages.
//
// Callers work with the Mail interface and the Message payload. Each Send
// returns the provider message id that later delivery callbacks refer to.
// Drivers: SMTP (any relay) and Amazon SES v2.
package mail
