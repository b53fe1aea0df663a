package shared

import "fmt"

// DirectorySyncLockKey builds the redis key serializing directory syncs per tenant.
func DirectorySyncLockKey(tenant string) string {
	return fmt.Sprintf("federation:%s:sync:lock", tenant)
}

// LoginFailureKey builds the redis key counting failed logins per account.
func LoginFailureKey(email string) string {
	return fmt.Sprintf("auth:loginfail:%s", email)
}
