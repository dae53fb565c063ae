// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package benchmark summarizes a result table: verdict counts, latency
// statistics and, when the table carries expected labels, accuracy,
// precision and recall per classifier.
//
// # Usage
//
//	tbl, err := store.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	report, err := benchmark.Summarize(store.Path(), tbl)
//	if err != nil {
//	    return err
//	}
//	benchmark.NewConsoleReporter(os.Stdout, false).Report(report)
package benchmark
