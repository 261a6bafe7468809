package tui

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
	"github.com/juju/clock"
	"github.com/juju/collections/set"

	"github.com/Joseda-hg/todoapi/internal/model"
	"github.com/Joseda-hg/todoapi/internal/store"
)

const (
	viewHeader = "header"
	viewFooter = "footer"
	viewLists  = "lists"
	viewItems  = "items"
	viewDetail = "detail"
	viewForm   = "form"
	viewHelp   = "help"
)

type UI struct {
	store store.Store
	clock clock.Clock
	gui   *gocui.Gui

	lists []model.TodoList
	items []model.TodoItem

	selectedList int
	selectedItem int
	focus        string

	stateFilter *model.State
	marked      set.Strings

	form       *formState
	formEditor *formEditor
	helpActive bool
	status     string
}

type formEditor struct {
	ui *UI
}

func Run(store store.Store, clk clock.Clock) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(store, clk)
	ui.gui = gui
	gui.Mouse = true

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.load(); err != nil {
		return err
	}

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

func newUI(store store.Store, clk clock.Clock) *UI {
	ui := &UI{
		store:  store,
		clock:  clk,
		focus:  viewLists,
		marked: set.NewStrings(),
	}
	ui.formEditor = &formEditor{ui: ui}
	return ui
}

type binding struct {
	view    string
	key     any
	handler func(*gocui.Gui, *gocui.View) error
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	bindings := []binding{
		{"", gocui.KeyCtrlC, u.quit},
		{"", 'q', u.quit},
		{"", 'r', u.reload},
		{"", 'a', u.addEntry},
		{"", 'e', u.editEntry},
		{"", 'd', u.deleteEntry},
		{"", 'x', u.toggleDone},
		{"", 'c', u.cycleState},
		{"", 'f', u.cycleFilter},
		{"", 'b', u.completeMarked},
		{"", '?', u.toggleHelp},
		{"", gocui.KeyTab, u.switchFocus},
		{viewItems, gocui.KeySpace, u.toggleMark},
		{viewForm, gocui.KeyEnter, u.submitForm},
		{viewForm, gocui.KeyTab, u.nextFormField},
		{viewForm, gocui.KeyBacktab, u.prevFormField},
		{viewForm, gocui.KeyArrowDown, u.nextFormField},
		{viewForm, gocui.KeyArrowUp, u.prevFormField},
		{viewForm, gocui.KeyEsc, u.cancelForm},
		{viewHelp, gocui.KeyEsc, u.closeHelp},
		{viewHelp, 'q', u.closeHelp},
		{viewHelp, '?', u.closeHelp},
	}
	for _, name := range []string{viewLists, viewItems} {
		bindings = append(bindings,
			binding{name, gocui.KeyArrowDown, u.moveDown},
			binding{name, 'j', u.moveDown},
			binding{name, gocui.KeyArrowUp, u.moveUp},
			binding{name, 'k', u.moveUp},
		)
	}
	for _, b := range bindings {
		if err := gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}

	for _, name := range []string{viewLists, viewItems} {
		name := name
		if err := gui.SetViewClickBinding(&gocui.ViewMouseBinding{ViewName: name, Key: gocui.MouseLeft, Handler: func(opts gocui.ViewMouseBindingOpts) error {
			return u.onListClick(gui, name, opts)
		}}); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	l := computeLayout(maxX, bodyBottom-bodyTop+1)
	leftX1 := l.leftWidth - 1
	rightX0 := min(leftX1+1, maxX-1)
	itemsY1 := bodyTop + l.itemsHeight - 1

	listsView, err := gui.SetView(viewLists, 0, bodyTop, leftX1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		listsView.Title = "Lists"
	}
	applyViewStyle(listsView, u.focus == viewLists)
	u.renderLists(listsView)

	itemsView, err := gui.SetView(viewItems, rightX0, bodyTop, maxX-1, itemsY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	itemsView.Title = u.itemsTitle()
	applyViewStyle(itemsView, u.focus == viewItems)
	u.renderItems(itemsView)

	detailView, err := gui.SetView(viewDetail, rightX0, itemsY1+1, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "Detail"
		detailView.Wrap = true
	}
	applyViewStyle(detailView, false)
	u.renderDetail(detailView)

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	gui.Cursor = u.form != nil
	return nil
}

type layout struct {
	leftWidth   int
	itemsHeight int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 3
	if leftWidth < 24 {
		leftWidth = 24
	}
	if leftWidth > safeWidth-18 {
		leftWidth = safeWidth / 2
	}

	itemsHeight := int(float64(safeHeight) * 0.6)
	if itemsHeight < 4 {
		itemsHeight = 4
	}
	if safeHeight-itemsHeight < 4 {
		itemsHeight = max(safeHeight-4, 4)
	}
	return layout{leftWidth: leftWidth, itemsHeight: itemsHeight}
}

func (u *UI) load() error {
	lists, err := u.store.ListLists(context.Background(), model.Page{})
	if err != nil {
		return err
	}
	u.lists = lists
	if u.selectedList >= len(u.lists) {
		u.selectedList = max(len(u.lists)-1, 0)
	}
	return u.loadItems()
}

func (u *UI) loadItems() error {
	list := u.selectedListEntry()
	if list == nil {
		u.items = nil
		u.selectedItem = 0
		u.marked = set.NewStrings()
		return nil
	}

	items, err := u.store.ListItems(context.Background(), model.ItemFilter{ListID: list.ID, State: u.stateFilter}, model.Page{})
	if err != nil {
		return err
	}
	u.items = items
	if u.selectedItem >= len(u.items) {
		u.selectedItem = max(len(u.items)-1, 0)
	}

	visible := set.NewStrings()
	for _, item := range items {
		visible.Add(item.ID.String())
	}
	u.marked = u.marked.Intersection(visible)
	return nil
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	filter := "any"
	if u.stateFilter != nil {
		filter = stateLabel(u.stateFilter)
	}
	fmt.Fprintf(view, "Lists: %d | Items: %d | State: %s | Marked: %d", len(u.lists), len(u.items), filter, u.marked.Size())
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	fmt.Fprintln(view, "a add | e edit | d delete | x done | c cycle state | space mark | b complete marked")
	fmt.Fprintln(view, "f filter state | tab pane | j/k move | r reload | ? help | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) itemsTitle() string {
	list := u.selectedListEntry()
	if list == nil {
		return "Items"
	}
	return "Items of " + list.Name
}

func (u *UI) renderLists(view *gocui.View) {
	view.Clear()
	_, height := view.InnerSize()
	start, end := visibleRange(u.selectedList, len(u.lists), height)
	for i := start; i < end; i++ {
		fmt.Fprintf(view, "%s %s\n", selectionPrefix(i == u.selectedList, u.focus == viewLists), formatListSummary(u.lists[i]))
	}
}

func (u *UI) renderItems(view *gocui.View) {
	view.Clear()
	_, height := view.InnerSize()
	now := u.clock.Now()
	start, end := visibleRange(u.selectedItem, len(u.items), height)
	for i := start; i < end; i++ {
		item := u.items[i]
		mark := " "
		if u.marked.Contains(item.ID.String()) {
			mark = "+"
		}
		fmt.Fprintf(view, "%s%s %s\n", selectionPrefix(i == u.selectedItem, u.focus == viewItems), mark, formatItemSummary(item, now))
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()
	now := u.clock.Now()
	if u.focus == viewItems {
		if item := u.selectedItemEntry(); item != nil {
			fmt.Fprint(view, formatItemDetail(*item, now))
			return
		}
	}
	if list := u.selectedListEntry(); list != nil {
		fmt.Fprint(view, formatListDetail(*list, now))
	}
}

func (u *UI) onListClick(gui *gocui.Gui, viewName string, opts gocui.ViewMouseBindingOpts) error {
	if u.inputActive() {
		return nil
	}
	view, err := gui.View(viewName)
	if err != nil {
		return nil
	}
	_, height := view.InnerSize()
	_, y0, _, _ := view.Dimensions()
	row := max(opts.Y-y0-1, 0)
	switch viewName {
	case viewLists:
		start, end := visibleRange(u.selectedList, len(u.lists), height)
		if index := start + row; index < end {
			u.selectedList = index
			u.selectedItem = 0
		}
	case viewItems:
		start, end := visibleRange(u.selectedItem, len(u.items), height)
		if index := start + row; index < end {
			u.selectedItem = index
		}
	}
	u.focus = viewName
	_, _ = gui.SetCurrentView(viewName)
	if viewName == viewLists {
		return u.loadItems()
	}
	return nil
}

func (u *UI) selectedListEntry() *model.TodoList {
	if u.selectedList >= 0 && u.selectedList < len(u.lists) {
		return &u.lists[u.selectedList]
	}
	return nil
}

func (u *UI) selectedItemEntry() *model.TodoItem {
	if u.selectedItem >= 0 && u.selectedItem < len(u.items) {
		return &u.items[u.selectedItem]
	}
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.focus == viewLists {
		u.focus = viewItems
	} else {
		u.focus = viewLists
	}
	if gui != nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	return nil
}

func (u *UI) moveDown(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewLists:
		if u.selectedList < len(u.lists)-1 {
			u.selectedList++
			u.selectedItem = 0
			return u.loadItems()
		}
	case viewItems:
		if u.selectedItem < len(u.items)-1 {
			u.selectedItem++
		}
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewLists:
		if u.selectedList > 0 {
			u.selectedList--
			u.selectedItem = 0
			return u.loadItems()
		}
	case viewItems:
		if u.selectedItem > 0 {
			u.selectedItem--
		}
	}
	return nil
}

func (u *UI) reload(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	return u.load()
}

func (u *UI) cycleFilter(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.stateFilter = nextFilter(u.stateFilter)
	u.selectedItem = 0
	return u.loadItems()
}

func (u *UI) toggleHelp(gui *gocui.Gui, _ *gocui.View) error {
	if u.form != nil {
		return nil
	}
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	if gui != nil {
		_ = gui.DeleteView(viewHelp)
		_, _ = gui.SetCurrentView(u.focus)
	}
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := min(64, maxX-2)
	height := min(20, maxY-2)
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	view.Title = "Help"
	view.Wrap = true
	view.Clear()
	fmt.Fprint(view, helpText())
	_, _ = gui.SetViewOnTop(viewHelp)
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}

func (u *UI) addEntry(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.focus == viewItems {
		list := u.selectedListEntry()
		if list == nil {
			u.status = "create a list first"
			return nil
		}
		u.form = &formState{kind: formItem, listID: list.ID, fields: itemFormFields(nil)}
		return nil
	}
	u.form = &formState{kind: formList, fields: listFormFields(nil)}
	return nil
}

func (u *UI) editEntry(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.focus == viewItems {
		item := u.selectedItemEntry()
		if item == nil {
			return nil
		}
		u.form = &formState{kind: formItem, id: item.ID, listID: item.ListID, fields: itemFormFields(item)}
		return nil
	}
	list := u.selectedListEntry()
	if list == nil {
		return nil
	}
	u.form = &formState{kind: formList, id: list.ID, fields: listFormFields(list)}
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := min(10, max(6, maxY/2))
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	view.Title = u.form.title()
	view.Wrap = true
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetViewOnTop(viewForm)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) submitForm(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if err := u.form.save(context.Background(), u.store, u.clock.Now()); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = ""
	u.closeForm(gui)
	return u.load()
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.closeForm(gui)
	return nil
}

func (u *UI) closeForm(gui *gocui.Gui) {
	u.form = nil
	if gui != nil {
		_ = gui.DeleteView(viewForm)
		_, _ = gui.SetCurrentView(u.focus)
	}
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.Value)
	}
	current := u.form.fields[u.form.index]
	cursorX := len([]rune(current.Label)) + len([]rune(current.Value)) + 4
	view.SetCursor(cursorX, u.form.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	if field.choice {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = cycleState(field.Value, 1)
		case gocui.KeyArrowLeft:
			field.Value = cycleState(field.Value, -1)
		}
		ui.renderForm(view)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

func (u *UI) deleteEntry(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	var err error
	switch u.focus {
	case viewItems:
		item := u.selectedItemEntry()
		if item == nil {
			return nil
		}
		err = u.store.DeleteItem(context.Background(), item.ListID, item.ID)
	default:
		list := u.selectedListEntry()
		if list == nil {
			return nil
		}
		err = u.store.DeleteList(context.Background(), list.ID)
	}
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = ""
	return u.load()
}

// toggleDone flips the selected item between done and todo, stamping or
// clearing its completed date.
func (u *UI) toggleDone(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewItems {
		return nil
	}
	item := u.selectedItemEntry()
	if item == nil {
		return nil
	}
	now := u.clock.Now()
	state := model.StateDone
	completed := &now
	if item.State != nil && *item.State == model.StateDone {
		state = model.StateTodo
		completed = nil
	}
	return u.updateItem(*item, model.ItemPatch{
		State:         model.Some(&state),
		CompletedDate: model.Some(completed),
		UpdatedDate:   now,
	})
}

func (u *UI) cycleState(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.focus != viewItems {
		return nil
	}
	item := u.selectedItemEntry()
	if item == nil {
		return nil
	}
	next := nextState(item.State)
	return u.updateItem(*item, model.ItemPatch{
		State:       model.Some(&next),
		UpdatedDate: u.clock.Now(),
	})
}

func (u *UI) updateItem(item model.TodoItem, patch model.ItemPatch) error {
	if _, err := u.store.UpdateItem(context.Background(), item.ListID, item.ID, patch); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = ""
	return u.loadItems()
}

func (u *UI) toggleMark(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	item := u.selectedItemEntry()
	if item == nil {
		return nil
	}
	id := item.ID.String()
	if u.marked.Contains(id) {
		u.marked.Remove(id)
	} else {
		u.marked.Add(id)
	}
	return nil
}

// completeMarked moves every marked item of the selected list to done in
// one batch.
func (u *UI) completeMarked(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() || u.marked.IsEmpty() {
		return nil
	}
	list := u.selectedListEntry()
	if list == nil {
		return nil
	}
	ids := make([]model.ID, 0, u.marked.Size())
	for _, id := range u.marked.SortedValues() {
		ids = append(ids, model.ID(id))
	}
	updated, err := u.store.SetItemsState(context.Background(), list.ID, ids, model.StateDone, u.clock.Now())
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.marked = set.NewStrings()
	u.status = fmt.Sprintf("completed %d items", len(updated))
	return u.loadItems()
}

func (u *UI) inputActive() bool {
	return u.form != nil || u.helpActive
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  Tab switch between lists and items",
		"  j/k or arrows move selection",
		"  mouse click to focus/select",
		"",
		"Actions:",
		"  a add list/item | e edit | d delete",
		"  x toggle done | c cycle state",
		"  space mark item | b complete marked items",
		"  enter save (form) | tab next field | esc cancel",
		"",
		"Filter:",
		"  f cycle item state filter",
		"",
		"Other:",
		"  r reload | ? help | esc/q close help | q quit",
	}, "\n")
}

func applyViewStyle(view *gocui.View, focused bool) {
	view.Frame = true
	view.Highlight = false
	view.HighlightInactive = false
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
		view.TitleColor = gocui.ColorDefault
	}
}
