// Package qqemoji maps QQ system face ids to readable emoji names.
//
// QQ guild messages carry system faces as <emoji:id> tokens with no
// cross-platform representation, so the relay renders them as a bracketed
// name on Discord. Unmapped ids keep the raw id visible.
package qqemoji

var names = map[string]string{
	"0":   "Surprised",
	"1":   "Pout",
	"2":   "Flushed",
	"4":   "Smug",
	"5":   "Sob",
	"6":   "Shy",
	"7":   "Shush",
	"8":   "Sleepy",
	"9":   "Cry",
	"10":  "Awkward",
	"11":  "Angry",
	"12":  "Tongue",
	"13":  "Grin",
	"14":  "Smile",
	"15":  "Sad",
	"16":  "Cool",
	"18":  "Scream",
	"19":  "Vomit",
	"20":  "Chuckle",
	"21":  "Happy",
	"22":  "Slight Smile",
	"23":  "Grimace",
	"24":  "Drool",
	"25":  "Drowsy",
	"26":  "Panic",
	"27":  "Sweat",
	"28":  "Laugh",
	"29":  "Relaxed",
	"30":  "Determined",
	"31":  "Scold",
	"32":  "Doubtful",
	"33":  "Silent",
	"34":  "Dizzy",
	"35":  "Tormented",
	"36":  "Shattered",
	"37":  "Skull",
	"38":  "Knock",
	"39":  "Wave",
	"41":  "Shiver",
	"42":  "Love",
	"43":  "Shake",
	"46":  "Pig",
	"49":  "Hug",
	"53":  "Cake",
	"59":  "Poop",
	"60":  "Coffee",
	"63":  "Rose",
	"64":  "Wilted Rose",
	"66":  "Heart",
	"67":  "Broken Heart",
	"74":  "Sun",
	"75":  "Moon",
	"76":  "Thumbs Up",
	"77":  "Thumbs Down",
	"78":  "Handshake",
	"79":  "Victory",
	"85":  "Flying Kiss",
	"89":  "Watermelon",
	"96":  "Cold Sweat",
	"97":  "Wipe Sweat",
	"98":  "Pick Nose",
	"99":  "Applaud",
	"100": "Embarrassed",
	"101": "Sneer",
	"102": "Smug Left",
	"103": "Smug Right",
	"104": "Yawn",
	"105": "Despise",
	"106": "Wronged",
	"107": "About to Cry",
	"108": "Sly",
	"109": "Kiss",
	"110": "Startled",
	"111": "Pitiful",
	"116": "Shy Rose",
	"118": "Fist Salute",
	"120": "Fist",
	"122": "Love You",
	"123": "No",
	"124": "OK",
	"125": "Spin",
	"129": "Wave Hand",
	"144": "Cheer",
	"146": "Rage",
	"147": "Lollipop",
	"171": "Tea",
	"173": "Burst into Tears",
	"174": "Doge",
	"175": "Cute",
	"176": "Giggle",
	"177": "Splurt",
	"178": "Side Eye",
	"179": "Doge Face",
	"181": "Poke",
	"182": "Laugh and Cry",
	"183": "Me Too",
	"185": "Alpaca",
	"187": "Ghost",
	"201": "Salute",
	"212": "Tractor",
	"262": "Heartbroken",
	"264": "Facepalm",
	"265": "Shocked",
	"266": "Raised Eyebrow",
	"267": "Confused",
	"268": "Doubt",
	"269": "Pitiful Plea",
	"270": "Come On",
	"271": "Sly Smile",
	"272": "Eye Roll",
	"273": "Strong",
	"277": "Doge Run",
	"281": "Spectate",
	"282": "Respect",
	"283": "Amazing",
	"284": "Pounce",
	"285": "Fishing",
	"287": "Oh",
	"289": "Puzzled",
	"290": "Joyful",
	"293": "Catch Fish",
	"294": "Looking Forward",
	"297": "Worship",
	"298": "Yuanxiao",
	"299": "Battle",
	"305": "Blow Kiss",
	"306": "Bull Pride",
	"307": "Meow Salute",
	"314": "Observe",
	"315": "Sword Down",
	"318": "Cheer On",
	"319": "Shocked Face",
	"320": "Celebrate",
	"324": "Disappointed",
	"325": "Terrified",
	"326": "Angry Grievance",
	"332": "Stare",
	"333": "Cheers",
	"334": "Toast",
	"336": "Smirk",
	"337": "Gaze",
	"338": "Waiting",
	"339": "Settled",
	"341": "Ding",
	"342": "Sour",
	"343": "Rub",
	"344": "Big Brain",
	"345": "Push Hard",
	"346": "Bottle Flip",
}

// Name returns the display name for a QQ face id.
func Name(id string) (string, bool) {
	name, ok := names[id]
	return name, ok
}
