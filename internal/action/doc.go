// Package action implements the Action Gate component: local move validation
// against the reconciled view, and move submission over the REST client.
package action
