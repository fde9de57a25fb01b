package rediskey

import "fmt"

// Key namespaces (global convention across services)
const (
	LotSequencePrefix = "seq:lot"
	TenantPrefix      = "tenant"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLotSequenceKey returns "seq:lot:{tenantID}"
func BuildLotSequenceKey(tenantID string) string {
	return NamespaceKey(LotSequencePrefix, tenantID)
}

// BuildTenantIDKey returns "tenant:{tenantID}"
func BuildTenantIDKey(tenantID string) string {
	return NamespaceKey(TenantPrefix, tenantID)
}
