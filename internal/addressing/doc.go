// Package addressing computes the address layout of a spoke.
//
// Every spoke owns one /24 inside the two-octet base range
// ({base}.{spoke_id}.0/24) and splits it into four /26 subnets, one each
// for the VM, database, key vault and workspace tiers. The functions are
// pure: the same spoke id always yields the same layout.
package addressing
