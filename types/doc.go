// Package types provides core types shared across the agentcoord library.
// This package has ZERO dependencies on other agentcoord packages to avoid
// circular imports. All other packages should import types from here.
package types
