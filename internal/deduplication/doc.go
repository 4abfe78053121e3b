// Package deduplication decides which scraped alerts are new.
//
// # Overview
//
// The same regulatory alert is routinely observed more than once: both sites
// list it, a re-scrape picks up an edited title, or a later page repeats an
// earlier row. This package turns a batch of freshly scraped alerts into the
// subset worth persisting. It is pure and synchronous; all I/O belongs to the
// scrapers and stores that call it.
//
// # Components
//
//  1. Detector: pairwise judgement between two alerts (IsDuplicate, Compare)
//  2. Deduplicator: reduces one batch to unique alerts (RemoveDuplicates)
//  3. Planner: filters a deduplicated batch against alerts already in the
//     store (PlanAdditions)
//
// # Detector rules
//
// Rules are evaluated in order and the first that holds wins:
//
//  1. Both references are non-empty and equal.
//  2. Same source, same issue day, and the lower-cased titles have a
//     similarity ratio of at least DuplicateThreshold*100.
//  3. Both identity hashes are non-empty and equal.
//
// The fuzzy rule is not transitive. The Deduplicator keeps the earliest alert
// of each chain and only suppresses alerts that directly match a kept alert;
// alerts already removed are never compared again. Union-find clustering would
// merge whole chains, at the cost of dropping alerts that match nothing kept.
//
// # Planner
//
// The Planner only uses exact identity (hash and reference) against the store.
// Fuzzy matching against every stored alert would be O(n*m) per run, so a
// title edited after it was first recorded shows up as a new row.
//
// # Usage
//
//	cfg := deduplication.DefaultConfig()
//	dedup, err := deduplication.NewDeduplicator(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	result := dedup.RemoveDuplicates(scraped)
//
//	known, err := store.GetExistingAlerts(ctx)
//	if err != nil {
//	    return fmt.Errorf("failed to read existing alerts: %w", err)
//	}
//	plan := deduplication.NewPlanner(logger).PlanAdditions(known, result.Unique)
//	if err := store.Append(ctx, plan.ToAdd); err != nil {
//	    return fmt.Errorf("failed to append alerts: %w", err)
//	}
package deduplication
