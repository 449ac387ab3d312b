// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import "errors"

var (
	// ErrEmptyLocation is returned when no input location is given.
	ErrEmptyLocation = errors.New("empty input location")

	// ErrUnsupportedScheme is returned for a URL scheme with no loader.
	ErrUnsupportedScheme = errors.New("unsupported input scheme")

	// ErrTooLarge is returned when an input exceeds the size limit.
	ErrTooLarge = errors.New("input too large")

	// ErrFetch is returned when a remote input cannot be fetched.
	ErrFetch = errors.New("fetch failed")

	// ErrUnknownSyntax is returned when no parser can be chosen for an input.
	ErrUnknownSyntax = errors.New("cannot determine input syntax")

	// ErrCredentials is returned when a configured credentials file is missing.
	ErrCredentials = errors.New("credentials file not found")
)
