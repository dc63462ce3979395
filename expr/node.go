package expr

// Node is an element of a parsed expression. The set of implementations is
// closed; eval handles every one of them.
type Node interface {
	node()
}

// Op is a unary or binary operator.
type Op int

const (
	OpAdd Op = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNeg
	OpPos
)

var opSymbols = map[Op]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpPow: "**",
	OpNeg: "-",
	OpPos: "+",
}

func (o Op) String() string { return opSymbols[o] }

// NumberLit is a numeric literal.
type NumberLit struct {
	Value Number
}

// Constant is a reference to a named constant such as pi.
type Constant struct {
	Name  string
	Value float64
}

// Unary applies OpNeg or OpPos to X.
type Unary struct {
	Op Op
	X  Node
}

// Binary applies an arithmetic operator to X and Y.
type Binary struct {
	Op   Op
	X, Y Node
}

// Call invokes an allow-listed function.
type Call struct {
	Func *Function
	Args []Node
}

// List is a bracketed sequence. It only appears as the sole argument of an
// aggregate function.
type List struct {
	Items []Node
}

func (*NumberLit) node() {}
func (*Constant) node()  {}
func (*Unary) node()     {}
func (*Binary) node()    {}
func (*Call) node()      {}
func (*List) node()      {}
