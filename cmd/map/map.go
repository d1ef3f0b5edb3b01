// Package mapcmd implements `gbtk map`: a read-only terminal explorer over
// a linked ROM's symbol file and map file, adapted from the teacher's
// interactive CPU debugger (cmd/cpu/debug.go, pkg/hw/cpu/debugger) with the
// live-state controller/backend split replaced by a ReadOnlyMapModel — no
// stepping, no breakpoints, just the bank tree and section table the
// linker already computed.
package mapcmd

import (
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
)

var MapCmd = &cobra.Command{
	Use:   "map <rom> <sym-file> <map-file>",
	Short: "Browse a linked ROM's bank layout and symbols in a terminal UI",
	Long: `Opens a read-only terminal explorer over a linked ROM: a tree of
section types and banks, a table of each bank's placed sections and EMPTY
gaps, and a symbol search box. The ROM itself is only used to report its
file size; the layout comes entirely from the symbol and map files the
linker already wrote.`,
	Args: cobra.ExactArgs(3),
	RunE: runMap,
}

func runMap(c *cobra.Command, args []string) error {
	romPath, symPath, mapPath := args[0], args[1], args[2]

	romInfo, err := os.Stat(romPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", romPath, err)
	}

	model, err := LoadModel(symPath, mapPath)
	if err != nil {
		return err
	}

	app := tview.NewApplication()

	tree := buildBankTree(model)
	table := tview.NewTable().SetBorders(false).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(" Bank contents ")

	search := tview.NewInputField().SetLabel("Find symbol: ")
	searchResults := tview.NewTextView().SetDynamicColors(true)
	searchResults.SetBorder(true).SetTitle(" Matches ")

	status := tview.NewTextView().
		SetText(fmt.Sprintf(" %s (%d bytes) — %d symbols, %d banks ", romPath, romInfo.Size(), len(model.Symbols), len(model.Banks)))

	tree.SetChangedFunc(func(node *tview.TreeNode) {
		if bank, ok := node.GetReference().(*Bank); ok {
			fillBankTable(table, bank)
		}
	})

	search.SetChangedFunc(func(text string) {
		searchResults.Clear()
		for _, s := range model.FindSymbols(text) {
			fmt.Fprintf(searchResults, "%02X:%04X  %s\n", s.Bank, s.Addr, s.Name)
		}
	})

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tree, 0, 2, true).
		AddItem(search, 1, 0, false).
		AddItem(searchResults, 0, 1, false)

	root := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(table, 0, 2, false)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(root, 0, 1, true).
		AddItem(status, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			if app.GetFocus() == tree {
				app.SetFocus(search)
			} else {
				app.SetFocus(tree)
			}
			return nil
		case tcell.KeyEsc:
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(layout, true).SetFocus(tree).Run()
}

// buildBankTree groups model's banks by section type, one child node per
// bank, mirroring the teacher debugger's breakpoint/memory tree widget.
func buildBankTree(model *ReadOnlyMapModel) *tview.TreeView {
	root := tview.NewTreeNode("ROM").SetSelectable(false)
	byType := make(map[string]*tview.TreeNode)

	for i := range model.Banks {
		b := &model.Banks[i]
		typeNode, ok := byType[b.SectionType]
		if !ok {
			typeNode = tview.NewTreeNode(b.SectionType).SetSelectable(false)
			byType[b.SectionType] = typeNode
			root.AddChild(typeNode)
		}
		bankNode := tview.NewTreeNode(fmt.Sprintf("bank %d (%d free)", b.Bank, b.TotalEmpty)).
			SetReference(b)
		typeNode.AddChild(bankNode)
	}

	tree := tview.NewTreeView().SetRoot(root).SetCurrentNode(root)
	tree.SetBorder(true).SetTitle(" Banks ")
	return tree
}

func fillBankTable(table *tview.Table, bank *Bank) {
	table.Clear()
	table.SetCell(0, 0, tview.NewTableCell("Start").SetSelectable(false))
	table.SetCell(0, 1, tview.NewTableCell("End").SetSelectable(false))
	table.SetCell(0, 2, tview.NewTableCell("Name").SetSelectable(false))
	table.SetCell(0, 3, tview.NewTableCell("Size").SetSelectable(false))

	for i, e := range bank.Entries {
		row := i + 1
		color := tcell.ColorWhite
		if e.Empty {
			color = tcell.ColorGray
		}
		table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("$%04X", e.AddrStart)).SetTextColor(color))
		table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("$%04X", e.AddrEnd)).SetTextColor(color))
		table.SetCell(row, 2, tview.NewTableCell(e.Name).SetTextColor(color))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", e.Size)).SetTextColor(color))
	}
}
