// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bento Contributors

package memory_test

import (
	"testing"

	"github.com/Raforawesome/bento/internal/project"
	"github.com/Raforawesome/bento/internal/project/memory"
	"github.com/Raforawesome/bento/internal/project/projecttest"
)

func TestStoreConformance(t *testing.T) {
	projecttest.RunStoreSuite(t, func(_ *testing.T) project.Store {
		return memory.New()
	})
}
