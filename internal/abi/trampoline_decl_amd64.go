//go:build amd64

package abi

import "reflect"

// trampolineFns backs each pool slot with its own zero-argument Go func
// value; each is implemented in trampoline_amd64.s as a stub that loads its
// own baked slot index and jumps into the shared dispatcher. Taking the
// func value's entry PC via reflect.Value.Pointer (the same trick
// ebitengine/purego uses for its callback pool) gives a raw address that
// is safe to hand to guest code as a foreign-callable function pointer.
func trampoline0()
func trampoline1()
func trampoline2()
func trampoline3()
func trampoline4()
func trampoline5()
func trampoline6()
func trampoline7()
func trampoline8()
func trampoline9()
func trampoline10()
func trampoline11()
func trampoline12()
func trampoline13()
func trampoline14()
func trampoline15()
func trampoline16()
func trampoline17()
func trampoline18()
func trampoline19()
func trampoline20()
func trampoline21()
func trampoline22()
func trampoline23()
func trampoline24()
func trampoline25()
func trampoline26()
func trampoline27()
func trampoline28()
func trampoline29()
func trampoline30()
func trampoline31()
func trampoline32()
func trampoline33()
func trampoline34()
func trampoline35()
func trampoline36()
func trampoline37()
func trampoline38()
func trampoline39()
func trampoline40()
func trampoline41()
func trampoline42()
func trampoline43()
func trampoline44()
func trampoline45()
func trampoline46()
func trampoline47()
func trampoline48()
func trampoline49()
func trampoline50()
func trampoline51()
func trampoline52()
func trampoline53()
func trampoline54()
func trampoline55()
func trampoline56()
func trampoline57()
func trampoline58()
func trampoline59()
func trampoline60()
func trampoline61()
func trampoline62()
func trampoline63()
func trampoline64()
func trampoline65()
func trampoline66()
func trampoline67()
func trampoline68()
func trampoline69()
func trampoline70()
func trampoline71()
func trampoline72()
func trampoline73()
func trampoline74()
func trampoline75()
func trampoline76()
func trampoline77()
func trampoline78()
func trampoline79()
func trampoline80()
func trampoline81()
func trampoline82()
func trampoline83()
func trampoline84()
func trampoline85()
func trampoline86()
func trampoline87()
func trampoline88()
func trampoline89()
func trampoline90()
func trampoline91()
func trampoline92()
func trampoline93()
func trampoline94()
func trampoline95()
func trampoline96()
func trampoline97()
func trampoline98()
func trampoline99()
func trampoline100()
func trampoline101()
func trampoline102()
func trampoline103()
func trampoline104()
func trampoline105()
func trampoline106()
func trampoline107()
func trampoline108()
func trampoline109()
func trampoline110()
func trampoline111()
func trampoline112()
func trampoline113()
func trampoline114()
func trampoline115()
func trampoline116()
func trampoline117()
func trampoline118()
func trampoline119()
func trampoline120()
func trampoline121()
func trampoline122()
func trampoline123()
func trampoline124()
func trampoline125()
func trampoline126()
func trampoline127()
func trampoline128()
func trampoline129()
func trampoline130()
func trampoline131()
func trampoline132()
func trampoline133()
func trampoline134()
func trampoline135()
func trampoline136()
func trampoline137()
func trampoline138()
func trampoline139()
func trampoline140()
func trampoline141()
func trampoline142()
func trampoline143()
func trampoline144()
func trampoline145()
func trampoline146()
func trampoline147()
func trampoline148()
func trampoline149()
func trampoline150()
func trampoline151()
func trampoline152()
func trampoline153()
func trampoline154()
func trampoline155()
func trampoline156()
func trampoline157()
func trampoline158()
func trampoline159()
func trampoline160()
func trampoline161()
func trampoline162()
func trampoline163()
func trampoline164()
func trampoline165()
func trampoline166()
func trampoline167()
func trampoline168()
func trampoline169()
func trampoline170()
func trampoline171()
func trampoline172()
func trampoline173()
func trampoline174()
func trampoline175()
func trampoline176()
func trampoline177()
func trampoline178()
func trampoline179()
func trampoline180()
func trampoline181()
func trampoline182()
func trampoline183()
func trampoline184()
func trampoline185()
func trampoline186()
func trampoline187()
func trampoline188()
func trampoline189()
func trampoline190()
func trampoline191()
func trampoline192()
func trampoline193()
func trampoline194()
func trampoline195()
func trampoline196()
func trampoline197()
func trampoline198()
func trampoline199()
func trampoline200()
func trampoline201()
func trampoline202()
func trampoline203()
func trampoline204()
func trampoline205()
func trampoline206()
func trampoline207()
func trampoline208()
func trampoline209()
func trampoline210()
func trampoline211()
func trampoline212()
func trampoline213()
func trampoline214()
func trampoline215()
func trampoline216()
func trampoline217()
func trampoline218()
func trampoline219()
func trampoline220()
func trampoline221()
func trampoline222()
func trampoline223()
func trampoline224()
func trampoline225()
func trampoline226()
func trampoline227()
func trampoline228()
func trampoline229()
func trampoline230()
func trampoline231()
func trampoline232()
func trampoline233()
func trampoline234()
func trampoline235()
func trampoline236()
func trampoline237()
func trampoline238()
func trampoline239()
func trampoline240()
func trampoline241()
func trampoline242()
func trampoline243()
func trampoline244()
func trampoline245()
func trampoline246()
func trampoline247()
func trampoline248()
func trampoline249()
func trampoline250()
func trampoline251()
func trampoline252()
func trampoline253()
func trampoline254()
func trampoline255()

// callForeignAsm is implemented in trampoline_amd64.s; it calls fn using
// the Microsoft x64 convention with up to four integer arguments.
func callForeignAsm(fn uintptr, a0, a1, a2, a3 uint64) uint64

var trampolineFns = [numSlots]func(){
	trampoline0,
	trampoline1,
	trampoline2,
	trampoline3,
	trampoline4,
	trampoline5,
	trampoline6,
	trampoline7,
	trampoline8,
	trampoline9,
	trampoline10,
	trampoline11,
	trampoline12,
	trampoline13,
	trampoline14,
	trampoline15,
	trampoline16,
	trampoline17,
	trampoline18,
	trampoline19,
	trampoline20,
	trampoline21,
	trampoline22,
	trampoline23,
	trampoline24,
	trampoline25,
	trampoline26,
	trampoline27,
	trampoline28,
	trampoline29,
	trampoline30,
	trampoline31,
	trampoline32,
	trampoline33,
	trampoline34,
	trampoline35,
	trampoline36,
	trampoline37,
	trampoline38,
	trampoline39,
	trampoline40,
	trampoline41,
	trampoline42,
	trampoline43,
	trampoline44,
	trampoline45,
	trampoline46,
	trampoline47,
	trampoline48,
	trampoline49,
	trampoline50,
	trampoline51,
	trampoline52,
	trampoline53,
	trampoline54,
	trampoline55,
	trampoline56,
	trampoline57,
	trampoline58,
	trampoline59,
	trampoline60,
	trampoline61,
	trampoline62,
	trampoline63,
	trampoline64,
	trampoline65,
	trampoline66,
	trampoline67,
	trampoline68,
	trampoline69,
	trampoline70,
	trampoline71,
	trampoline72,
	trampoline73,
	trampoline74,
	trampoline75,
	trampoline76,
	trampoline77,
	trampoline78,
	trampoline79,
	trampoline80,
	trampoline81,
	trampoline82,
	trampoline83,
	trampoline84,
	trampoline85,
	trampoline86,
	trampoline87,
	trampoline88,
	trampoline89,
	trampoline90,
	trampoline91,
	trampoline92,
	trampoline93,
	trampoline94,
	trampoline95,
	trampoline96,
	trampoline97,
	trampoline98,
	trampoline99,
	trampoline100,
	trampoline101,
	trampoline102,
	trampoline103,
	trampoline104,
	trampoline105,
	trampoline106,
	trampoline107,
	trampoline108,
	trampoline109,
	trampoline110,
	trampoline111,
	trampoline112,
	trampoline113,
	trampoline114,
	trampoline115,
	trampoline116,
	trampoline117,
	trampoline118,
	trampoline119,
	trampoline120,
	trampoline121,
	trampoline122,
	trampoline123,
	trampoline124,
	trampoline125,
	trampoline126,
	trampoline127,
	trampoline128,
	trampoline129,
	trampoline130,
	trampoline131,
	trampoline132,
	trampoline133,
	trampoline134,
	trampoline135,
	trampoline136,
	trampoline137,
	trampoline138,
	trampoline139,
	trampoline140,
	trampoline141,
	trampoline142,
	trampoline143,
	trampoline144,
	trampoline145,
	trampoline146,
	trampoline147,
	trampoline148,
	trampoline149,
	trampoline150,
	trampoline151,
	trampoline152,
	trampoline153,
	trampoline154,
	trampoline155,
	trampoline156,
	trampoline157,
	trampoline158,
	trampoline159,
	trampoline160,
	trampoline161,
	trampoline162,
	trampoline163,
	trampoline164,
	trampoline165,
	trampoline166,
	trampoline167,
	trampoline168,
	trampoline169,
	trampoline170,
	trampoline171,
	trampoline172,
	trampoline173,
	trampoline174,
	trampoline175,
	trampoline176,
	trampoline177,
	trampoline178,
	trampoline179,
	trampoline180,
	trampoline181,
	trampoline182,
	trampoline183,
	trampoline184,
	trampoline185,
	trampoline186,
	trampoline187,
	trampoline188,
	trampoline189,
	trampoline190,
	trampoline191,
	trampoline192,
	trampoline193,
	trampoline194,
	trampoline195,
	trampoline196,
	trampoline197,
	trampoline198,
	trampoline199,
	trampoline200,
	trampoline201,
	trampoline202,
	trampoline203,
	trampoline204,
	trampoline205,
	trampoline206,
	trampoline207,
	trampoline208,
	trampoline209,
	trampoline210,
	trampoline211,
	trampoline212,
	trampoline213,
	trampoline214,
	trampoline215,
	trampoline216,
	trampoline217,
	trampoline218,
	trampoline219,
	trampoline220,
	trampoline221,
	trampoline222,
	trampoline223,
	trampoline224,
	trampoline225,
	trampoline226,
	trampoline227,
	trampoline228,
	trampoline229,
	trampoline230,
	trampoline231,
	trampoline232,
	trampoline233,
	trampoline234,
	trampoline235,
	trampoline236,
	trampoline237,
	trampoline238,
	trampoline239,
	trampoline240,
	trampoline241,
	trampoline242,
	trampoline243,
	trampoline244,
	trampoline245,
	trampoline246,
	trampoline247,
	trampoline248,
	trampoline249,
	trampoline250,
	trampoline251,
	trampoline252,
	trampoline253,
	trampoline254,
	trampoline255,
}

func trampolineAddr(i int) uintptr {
	return reflect.ValueOf(trampolineFns[i]).Pointer()
}
