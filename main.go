// SPDX-License-Identifier: AGPL-3.0-or-later
// SubHub - A resumable long-poll subscription engine for pub/sub channels
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/USA-RedDragon/SubHub>

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/USA-RedDragon/SubHub/internal/cmd"
	"github.com/USA-RedDragon/SubHub/internal/config"
	"github.com/USA-RedDragon/SubHub/internal/sdk"
	"github.com/USA-RedDragon/configulator"
)

func main() {
	c, err := configulator.New[config.Config]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create configuration loader: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.NewCommand(sdk.Version, sdk.GitCommit)

	if err := c.BindToCommand(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind configuration flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.SetContext(c.IntoContext(context.Background()))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
