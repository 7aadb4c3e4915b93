// Package grocery groups ingredients by store aisle for the shopping list.
package grocery

import "strings"

// Aisle names returned by Categorize, in walking order.
const (
	Produce   = "Produce"
	Dairy     = "Dairy & Eggs"
	Meat      = "Meat & Seafood"
	Bakery    = "Bakery"
	Spices    = "Spices & Baking"
	Pantry    = "Pantry"
	Frozen    = "Frozen"
	Beverages = "Beverages"
	Other     = "Other"
)

// Aisles lists every aisle in the order a shopper walks them.
var Aisles = []string{Produce, Dairy, Meat, Bakery, Spices, Pantry, Frozen, Beverages, Other}

// Categorize returns the aisle for an ingredient name. Preparation words such
// as "frozen" or "canned" win; otherwise words are checked from the last one
// backwards, so "chicken broth" is Pantry while "chicken breast" is Meat.
func Categorize(name string) string {
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return Other
	}

	for _, w := range words {
		if aisle, ok := modifiers[w]; ok {
			return aisle
		}
	}

	if aisle, ok := phrases[strings.Join(words, " ")]; ok {
		return aisle
	}
	if n := len(words); n > 2 {
		if aisle, ok := phrases[words[n-2]+" "+words[n-1]]; ok {
			return aisle
		}
	}

	for i := len(words) - 1; i >= 0; i-- {
		w := strings.Trim(words[i], ",.()")
		if aisle, ok := keywords[w]; ok {
			return aisle
		}
		if aisle, ok := keywords[singular(w)]; ok {
			return aisle
		}
	}
	return Other
}

// AisleOrder returns the walking position of an aisle; unknown aisles sort last.
func AisleOrder(aisle string) int {
	for i, a := range Aisles {
		if a == aisle {
			return i
		}
	}
	return len(Aisles)
}

func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "oes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

var modifiers = map[string]string{
	"frozen": Frozen,
	"canned": Pantry,
	"dried":  Pantry,
	"jarred": Pantry,
}

// phrases are multi-word names whose last word would mislead.
var phrases = map[string]string{
	"ice cream":     Frozen,
	"cream cheese":  Dairy,
	"sour cream":    Dairy,
	"baking soda":   Spices,
	"baking powder": Spices,
	"peanut butter": Pantry,
	"coconut milk":  Pantry,
	"soy sauce":     Pantry,
	"green onion":   Produce,
	"green onions":  Produce,
	"bell pepper":   Produce,
	"black pepper":  Spices,
	"club soda":     Beverages,
}

var keywords = map[string]string{
	// Produce
	"apple": Produce, "banana": Produce, "lemon": Produce, "lime": Produce, "orange": Produce,
	"avocado": Produce, "tomato": Produce, "potato": Produce, "onion": Produce, "shallot": Produce,
	"garlic": Produce, "lettuce": Produce, "spinach": Produce, "kale": Produce, "cabbage": Produce,
	"broccoli": Produce, "cauliflower": Produce, "carrot": Produce, "celery": Produce,
	"cucumber": Produce, "zucchini": Produce, "squash": Produce, "mushroom": Produce,
	"berry": Produce, "strawberry": Produce, "blueberry": Produce, "raspberry": Produce,
	"cilantro": Produce, "parsley": Produce, "basil": Produce, "mint": Produce, "ginger": Produce,
	"scallion": Produce, "leek": Produce, "jalapeno": Produce, "jalapeño": Produce,
	"asparagus": Produce, "pear": Produce, "peach": Produce, "mango": Produce, "pineapple": Produce,

	// Dairy & Eggs
	"milk": Dairy, "cream": Dairy, "butter": Dairy, "cheese": Dairy, "cheddar": Dairy,
	"mozzarella": Dairy, "parmesan": Dairy, "yogurt": Dairy, "egg": Dairy, "buttermilk": Dairy,
	"margarine": Dairy, "ricotta": Dairy, "feta": Dairy,

	// Meat & Seafood
	"chicken": Meat, "beef": Meat, "pork": Meat, "turkey": Meat, "lamb": Meat, "bacon": Meat,
	"sausage": Meat, "ham": Meat, "steak": Meat, "breast": Meat, "thigh": Meat, "salmon": Meat,
	"tuna": Meat, "shrimp": Meat, "fish": Meat, "cod": Meat, "crab": Meat, "prosciutto": Meat,

	// Bakery
	"bread": Bakery, "bun": Bakery, "roll": Bakery, "bagel": Bakery, "tortilla": Bakery,
	"pita": Bakery, "croissant": Bakery, "baguette": Bakery,

	// Spices & Baking
	"salt": Spices, "pepper": Spices, "cinnamon": Spices, "nutmeg": Spices, "paprika": Spices,
	"cumin": Spices, "oregano": Spices, "thyme": Spices, "vanilla": Spices, "yeast": Spices,
	"flour": Spices, "sugar": Spices, "cornstarch": Spices, "chocolate": Spices, "cocoa": Spices,
	"extract": Spices, "powder": Spices,

	// Pantry
	"rice": Pantry, "pasta": Pantry, "spaghetti": Pantry, "noodle": Pantry, "oil": Pantry,
	"vinegar": Pantry, "sauce": Pantry, "broth": Pantry, "stock": Pantry, "bean": Pantry,
	"lentil": Pantry, "oat": Pantry, "honey": Pantry, "syrup": Pantry, "ketchup": Pantry,
	"mustard": Pantry, "mayonnaise": Pantry, "nut": Pantry, "almond": Pantry, "walnut": Pantry,
	"pecan": Pantry, "raisin": Pantry, "breadcrumb": Pantry, "cereal": Pantry,

	// Beverages
	"water": Beverages, "juice": Beverages, "coffee": Beverages, "tea": Beverages,
	"wine": Beverages, "beer": Beverages, "soda": Beverages,
}
