// Package billbook is the invoice ledger core of a multi-branch retail
// point of sale.
//
// It issues gap-free, per-branch, per-month invoice numbers, records how
// each invoice was paid, settles UPI payments from a gateway, exports
// invoices in batches to an external accounting ledger and summarizes
// sales. It is a library: import it and pick a store.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/billbook"
//	    "github.com/xraph/billbook/store/postgres"
//	)
//
//	// db is a *grove.DB opened with the postgres driver
//	s := postgres.New(db)
//
//	ist, _ := time.LoadLocation("Asia/Kolkata")
//	e := billbook.New(s,
//	    billbook.WithLocation(ist),
//	    billbook.WithCurrency("inr"),
//	)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Invoice numbers
//
// Numbers look like DEL-INV-2403-0007: branch code, the YYMM of the
// invoice date in the configured location, and a counter that restarts at
// 1 every month. The counter is incremented atomically in the store, so
// concurrent cashiers never collide. A number is only allocated after the
// invoice has been validated; a number is lost only if the final insert
// fails, and that surfaces as an AllocationError.
//
// # Payments
//
// Cash settles immediately. UPI, credit and split payments start pending
// and move once, to completed or failed, through UpdatePaymentStatus,
// VerifyUPIPayment or HandleUPICallback. Terminal states never change.
//
// # Export
//
// ExportBatch claims unexported invoices, renders them as Tally vouchers,
// hands the artifact to an export.Sink and only then marks them exported.
// Delivery is at-least-once; see package export.
//
// # Money
//
// All amounts are integer minor units (paise for INR). See package types.
package billbook
