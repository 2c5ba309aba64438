package util

// Word lists for the sandwich id style. Entries within a list are unique so
// every draw is uniform over distinct words.
var (
	adjectives = []string{
		"crunchy", "smooth", "chunky", "creamy", "toasted", "grilled",
		"fresh", "wild", "organic", "natural", "homemade", "artisan",
		"crispy", "fluffy", "golden", "warm", "sweet", "savory",
		"tangy", "spicy", "mild", "bold", "classic", "fancy",
		"simple", "rustic", "gourmet", "premium", "deluxe", "perfect",
	}

	ingredients = []string{
		// spreads
		"peanut", "butter", "jelly", "jam", "honey", "nutella", "almond",
		"cashew", "hazelnut", "tahini", "hummus", "avocado", "cream", "cheese",
		"ricotta", "mayo", "mustard", "aioli", "pesto", "olive", "tapenade",
		// fruit and veg
		"banana", "strawberry", "grape", "raspberry", "apricot", "blueberry",
		"apple", "pear", "peach", "plum", "cherry", "mango", "fig",
		"tomato", "cucumber", "lettuce", "spinach", "arugula", "kale",
		// seeds
		"walnut", "pecan", "pistachio", "sunflower", "pumpkin",
		"flax", "chia", "sesame", "poppy", "hemp",
		// flavours
		"chocolate", "vanilla", "cinnamon", "coconut", "maple", "caramel",
		"marshmallow", "pretzel", "granola", "oat",
	}

	carriers = []string{
		"sandwich", "burger", "bun", "wrap", "bagel", "roll",
		"toast", "melt", "panini", "hoagie", "sub", "hero",
		"club", "grinder", "slider", "pocket", "croissant", "waffle",
	}
)
