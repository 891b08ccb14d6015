package container

// ListNode is one element of a List: PushBack and PushFront allocate it
// and carry the caller's value in Value.
type ListNode struct {
	prev, next *ListNode
	list       *List
	Value      interface{}
}

// Unlink removes n from whatever list it is in. Safe to call on a node
// that was the "current" node of an in-progress ForEach traversal, since
// ForEach captures the next pointer before invoking its callback.
func (n *ListNode) Unlink() {
	if n.list == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.list.length--
	n.prev, n.next, n.list = nil, nil, nil
}

// List is a doubly-linked list with a sentinel header node, so
// PushBack/PushFront/Unlink never need nil checks at the ends.
type List struct {
	head   ListNode
	length int
}

// NewList creates an empty list.
func NewList() *List {
	l := &List{}
	l.head.next = &l.head
	l.head.prev = &l.head
	return l
}

// PushBack appends a new node carrying value and returns it.
func (l *List) PushBack(value interface{}) *ListNode {
	n := &ListNode{Value: value, list: l}
	last := l.head.prev
	n.prev = last
	n.next = &l.head
	last.next = n
	l.head.prev = n
	l.length++
	return n
}

// PushFront prepends a new node carrying value and returns it.
func (l *List) PushFront(value interface{}) *ListNode {
	n := &ListNode{Value: value, list: l}
	first := l.head.next
	n.next = first
	n.prev = &l.head
	first.prev = n
	l.head.next = n
	l.length++
	return n
}

// IsEmpty reports whether the list has no elements.
func (l *List) IsEmpty() bool { return l.head.next == &l.head }

// Len returns the number of elements in the list.
func (l *List) Len() int { return l.length }

// Front returns the first node, or nil if the list is empty.
func (l *List) Front() *ListNode {
	if l.IsEmpty() {
		return nil
	}
	return l.head.next
}

// ForEach walks the list front-to-back, invoking fn with each node. fn
// may call Unlink on the node it was just given (the current node's next
// pointer is captured before fn runs), but must not mutate other nodes'
// linkage.
func (l *List) ForEach(fn func(node *ListNode)) {
	for n := l.head.next; n != &l.head; {
		next := n.next
		fn(n)
		n = next
	}
}
