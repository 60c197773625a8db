// Package checks contains the check modules compiled into webaudit.
//
// Each check inspects one page record passively. None of them issue
// requests of their own. Checks that target links, forms or cookies only
// report when the matching audit option is enabled.
package checks
