package specification

// PredicateTransformer rewrites a single leaf; the tree shape is kept.
type PredicateTransformer func(PredicateNode) (PredicateNode, error)

func NewTransformVisitor(transform PredicateTransformer) *TransformVisitor {
	return &TransformVisitor{transform: transform}
}

type TransformVisitor struct {
	transform PredicateTransformer
	result    Visitable
}

func (v *TransformVisitor) VisitTrue(n TrueNode) error {
	v.result = n
	return nil
}

func (v *TransformVisitor) VisitPredicate(n PredicateNode) error {
	node, err := v.transform(n)
	if err != nil {
		return err
	}
	v.result = node
	return nil
}

func (v *TransformVisitor) VisitAnd(n AndNode) error {
	operands, err := v.visitAll(n.Operands())
	if err != nil {
		return err
	}
	v.result = And(operands...)
	return nil
}

func (v *TransformVisitor) VisitOr(n OrNode) error {
	operands, err := v.visitAll(n.Operands())
	if err != nil {
		return err
	}
	v.result = OrElse(operands...)
	return nil
}

func (v *TransformVisitor) visitAll(operands []Visitable) ([]Visitable, error) {
	result := make([]Visitable, 0, len(operands))
	for _, o := range operands {
		if err := o.Accept(v); err != nil {
			return nil, err
		}
		result = append(result, v.result)
	}
	return result, nil
}

func (v *TransformVisitor) Result() Visitable {
	return v.result
}

// Transform applies fn to every leaf of exp.
func Transform(exp Visitable, fn PredicateTransformer) (Visitable, error) {
	v := NewTransformVisitor(fn)
	if err := exp.Accept(v); err != nil {
		return nil, err
	}
	return v.Result(), nil
}

// Predicates lists the leaves of exp in depth-first order.
func Predicates(exp Visitable) []PredicateNode {
	var result []PredicateNode
	_, _ = Transform(exp, func(n PredicateNode) (PredicateNode, error) {
		result = append(result, n)
		return n, nil
	})
	return result
}
