package prxw

// Break poisons w the way a detected invariant violation would,
// returning the error later calls report.
func (w *Window) Break(msg string) (err error) {
	func() {
		defer w.guard(&err)
		violate("%s", msg)
	}()
	return err
}
